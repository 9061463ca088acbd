// Package json selects the JSON implementation used on the HTTP surface.
// The hub speaks a lot of small JSON frames over WebSocket, so the encoder
// is pluggable between encoding/json and bytedance/sonic.
package json

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Library identifies a JSON implementation
type Library string

const (
	LibraryStandard Library = "standard"
	LibrarySonic    Library = "sonic"
)

// Codec bundles marshal/unmarshal functions for one library
type Codec struct {
	Library   Library
	Marshal   func(v interface{}) ([]byte, error)
	Unmarshal func(data []byte, v interface{}) error
}

// New returns the codec for the named library. Unknown names fall back to
// the standard library.
func New(library string) Codec {
	if Library(library) == LibrarySonic {
		api := sonic.Config{EscapeHTML: false}.Froze()
		return Codec{
			Library:   LibrarySonic,
			Marshal:   api.Marshal,
			Unmarshal: api.Unmarshal,
		}
	}
	return Codec{
		Library:   LibraryStandard,
		Marshal:   json.Marshal,
		Unmarshal: json.Unmarshal,
	}
}
