// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"errors"
	"fmt"
)

// ValidationError indicates the payload is missing a required field.
// The webhook handler maps it to HTTP 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// DecodeError indicates an attachment shape was present but its payload
// could not be decoded (e.g. malformed base64). Also HTTP 400: the
// caller sent bytes it thinks are valid, so silently ingesting a
// file-less record would hide the bug.
type DecodeError struct {
	Shape string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s attachment: %v", e.Shape, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsClientError reports whether err should be surfaced as a 400 rather
// than a 500.
func IsClientError(err error) bool {
	var ve *ValidationError
	var de *DecodeError
	return errors.As(err, &ve) || errors.As(err, &de)
}
