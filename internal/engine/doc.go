// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the content-based recommendation engine behind
// the swipe deck. One Engine is constructed per listener session and holds
// all mutable session state: the cached taste profile, the exclusion and
// listened sets, and the heard-track cache.
//
// The pipeline runs strictly downward. The profile builder derives a taste
// profile and seed identifiers from listening history. The candidate
// fetcher issues up to four parameterized recommendation batches (plus a
// keyword-search fallback for seedless accounts) and attaches audio
// features. The ranker filters by the listened set, applies two liveness
// fallback tiers, then orders candidates by Euclidean distance over
// danceability, energy and valence against the active target profile.
//
// Exclusion persistence is a best-effort side channel: store failures are
// logged and swallowed, never propagated into the recommendation flow.
package engine
