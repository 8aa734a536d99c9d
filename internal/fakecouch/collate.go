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

package fakecouch

import (
	"strings"
)

// rank orders JSON types the way CouchDB collates them.
func rank(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 2
		}
		return 1
	case float64, int:
		return 3
	case string:
		return 4
	case []interface{}:
		return 5
	default:
		return 6
	}
}

func number(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	}
	return 0
}

// collate compares two JSON values in CouchDB view order. Strings are
// compared by code point rather than by the ICU rules CouchDB uses.
func collate(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 3:
		na, nb := number(a), number(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case 4:
		return strings.Compare(a.(string), b.(string))
	case 5:
		aa, ba := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := collate(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return len(aa) - len(ba)
	}
	return 0
}
