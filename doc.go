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

// Package recliner reads, writes and updates CouchDB documents safely in the
// presence of concurrent writers.
//
// Every write carries the document's current revision, read immediately
// before the write. When the server rejects a write with a conflict, the
// revision is read again, the write recomposed, and the write retried, up to
// a bounded number of times (see [OptionMaxRetries]). Writes to a database
// which does not exist create it once and try again.
//
// Attachments with new data are uploaded as multipart/related requests;
// attachments the server already holds are sent as stubs, so retries never
// re-upload stored data.
//
// Views may be queried by field path with [DB.FindStrict], which generates
// and installs the view on first use.
//
// Failures are returned as *[Error] values, classified by [Name].
package recliner // import "github.com/go-kivik/recliner"
