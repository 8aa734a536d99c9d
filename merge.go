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

package recliner

// merge returns a new value with override merged over base. When both are
// objects, they are merged key by key, recursively. In every other case,
// arrays included, override replaces base. Neither argument is modified, and
// the result shares no objects or arrays with either.
func merge(base, override interface{}) interface{} {
	b, bok := base.(map[string]interface{})
	o, ook := override.(map[string]interface{})
	if !bok || !ook {
		return deepCopy(override)
	}
	out := make(map[string]interface{}, len(b)+len(o))
	for k, v := range b {
		out[k] = deepCopy(v)
	}
	for k, v := range o {
		if existing, ok := out[k]; ok {
			out[k] = merge(existing, v)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	if override == nil {
		override = map[string]interface{}{}
	}
	return merge(base, override).(map[string]interface{})
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		c := make(map[string]interface{}, len(t))
		for k, v := range t {
			c[k] = deepCopy(v)
		}
		return c
	case []interface{}:
		c := make([]interface{}, len(t))
		for i, v := range t {
			c[i] = deepCopy(v)
		}
		return c
	case []byte:
		return append([]byte{}, t...)
	}
	return v
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return deepCopy(m).(map[string]interface{})
}
