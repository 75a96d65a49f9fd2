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

package bearer

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zerocat/extension-mirror/module/mirror/http/modifier"
)

// NewAuthorizer returns a bearer token authorizer. When endpoint is not
// empty the token is only attached to requests sent to that host, so the
// same client can also talk to third-party catalogs without leaking it.
func NewAuthorizer(token, endpoint string) modifier.Modifier {
	a := &authorizer{token: token}
	if endpoint != "" {
		if u, err := url.Parse(endpoint); err == nil {
			a.url = u
		}
	}
	return a
}

type authorizer struct {
	token string
	url   *url.URL
}

func (a *authorizer) Modify(req *http.Request) error {
	if a.token == "" {
		return errors.New("bearer token is empty")
	}
	if !a.isTarget(req) {
		return nil
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.token))
	return nil
}

func (a *authorizer) isTarget(req *http.Request) bool {
	if a.url == nil {
		return true
	}
	return req.URL.Host == a.url.Host && req.URL.Scheme == a.url.Scheme
}
