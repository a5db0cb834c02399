// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/health", "200"))
	RecordAPIRequest("GET", "/health", "200", 5*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/health", "200"))

	if after != before+1 {
		t.Errorf("counter not incremented: before=%f after=%f", before, after)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+1 {
		t.Errorf("expected gauge %f, got %f", base+1, got)
	}

	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("expected gauge %f, got %f", base, got)
	}
}

func TestRecordCatalogRequestOutcomes(t *testing.T) {
	okBefore := testutil.ToFloat64(CatalogRequestsTotal.WithLabelValues("top_tracks", "success"))
	errBefore := testutil.ToFloat64(CatalogRequestsTotal.WithLabelValues("top_tracks", "error"))

	RecordCatalogRequest("top_tracks", "success", time.Millisecond)
	RecordCatalogRequest("top_tracks", "error", time.Millisecond)

	if got := testutil.ToFloat64(CatalogRequestsTotal.WithLabelValues("top_tracks", "success")); got != okBefore+1 {
		t.Errorf("success counter not incremented")
	}
	if got := testutil.ToFloat64(CatalogRequestsTotal.WithLabelValues("top_tracks", "error")); got != errBefore+1 {
		t.Errorf("error counter not incremented")
	}
}
