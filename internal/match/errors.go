package match

import "errors"

// ErrProfileNotFound means the requesting company has no CompanyProfile
// row yet.
var ErrProfileNotFound = errors.New("match: profile not found")

// ErrProfileIncomplete means tier-1 fields are missing — surfaced as a
// 409 by the HTTP layer.
var ErrProfileIncomplete = errors.New("match: profile incomplete")

// ErrReferenceNotEmbedded means Similar was called against a tender
// with no stored embedding.
var ErrReferenceNotEmbedded = errors.New("match: reference tender not embedded")

// ErrVectorStoreUnavailable signals a retriable 5xx from the vector
// store.
var ErrVectorStoreUnavailable = errors.New("match: vector store unavailable")
