// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"net/url"
	"strings"
)

const (
	prefixDesign = "_design/"
	prefixLocal  = "_local/"
)

// EncodeDocID encodes a document ID according to CouchDB's path encoding rules.
//
// In particular:
//   - '_design/' and '_local/' prefixes are unaltered.
//   - The rest of the docID is Query-URL encoded, except that spaces are
//     converted to %20. See https://github.com/apache/couchdb/issues/3565 for
//     an explanation.
func EncodeDocID(docID string) string {
	for _, prefix := range []string{prefixDesign, prefixLocal} {
		if strings.HasPrefix(docID, prefix) {
			return prefix + escape(strings.TrimPrefix(docID, prefix))
		}
	}
	return escape(docID)
}

// EncodeDBName encodes a database name for use as a path segment. Database
// names may contain slashes, which must be sent as %2F.
func EncodeDBName(name string) string {
	return escape(name)
}

// DocPath returns the escaped path of docID within the named database.
func DocPath(db, docID string) string {
	return EncodeDBName(db) + "/" + EncodeDocID(docID)
}

func escape(s string) string {
	s = url.QueryEscape(s)
	return strings.ReplaceAll(s, "+", "%20")
}
