package inventory

import "errors"

// ErrUnknownExtractor is returned by catalogs asked for an extractor they do not provide.
var ErrUnknownExtractor = errors.New("unknown extractor")
