// Copyright Project Harbor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modifier

import (
	"net/http"
)

// Modifier modifies request
type Modifier interface {
	Modify(*http.Request) error
}

// HeaderModifier sets a fixed set of headers on every request
type HeaderModifier map[string]string

func (h HeaderModifier) Modify(req *http.Request) error {
	for k, v := range h {
		req.Header.Set(k, v)
	}
	return nil
}
