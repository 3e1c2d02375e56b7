package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits page_size.
	DefaultPageSize = 24
	// DefaultMaxPageSize caps page_size.
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidSort      = errors.New("pagination: invalid sort")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Options control Parse for one listing endpoint.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	AllowedSorts    []string
	DefaultSort     string
}

// Params are the normalised listing parameters of a request.
type Params struct {
	PageSize  int
	PageToken string
	Sort      string
	Cursor    Cursor
}

// Parse reads page_size, page_token and sort from values. A page token issued
// for a different sort is rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	pageSize, err := parsePageSize(values.Get("page_size"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize, Sort: opts.DefaultSort}

	if raw := strings.ToLower(strings.TrimSpace(values.Get("sort"))); raw != "" {
		if !contains(opts.AllowedSorts, raw) {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidSort, raw)
		}
		params.Sort = raw
	}

	if raw := strings.TrimSpace(values.Get("page_token")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		if err := cursor.Check(params.Sort, ""); err != nil {
			return Params{}, err
		}
		params.PageToken = raw
		params.Cursor = cursor
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	size := opts.DefaultPageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > maxSize {
		size = maxSize
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return size, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxSize {
		value = maxSize
	}
	return value, nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
