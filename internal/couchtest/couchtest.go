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

// Package couchtest provides a real CouchDB server for integration tests.
package couchtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultImage is the CouchDB image started when no other is configured.
const DefaultImage = "couchdb:3.3.3"

const (
	envDSN   = "RECLINER_TEST_DSN"
	envUseTC = "USETC"
	envImage = "RECLINER_TEST_IMAGE"
)

var (
	once     sync.Once
	shared   string
	startErr error
)

// DSN returns the address of a CouchDB server for the test. It returns
// RECLINER_TEST_DSN if set. Otherwise, if USETC is set, a container is
// started, once per test binary. Otherwise the test is skipped.
func DSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv(envDSN); dsn != "" {
		return dsn
	}
	if os.Getenv(envUseTC) == "" {
		t.Skip("neither " + envDSN + " nor " + envUseTC + " set, skipping integration test")
	}
	once.Do(func() {
		image := os.Getenv(envImage)
		if image == "" {
			image = DefaultImage
		}
		shared, startErr = Start(context.Background(), image)
	})
	if startErr != nil {
		t.Fatal(startErr)
	}
	return shared
}

// Start starts a single-node CouchDB container and returns its DSN, with
// admin credentials.
func Start(ctx context.Context, image string) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"5984/tcp"},
		WaitingFor:   wait.ForHTTP("/").WithPort("5984/tcp").WithStartupTimeout(120 * time.Second),
		Env: map[string]string{
			"COUCHDB_USER":     "admin",
			"COUCHDB_PASSWORD": "abc123",
		},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "5984/tcp")
	if err != nil {
		return "", err
	}
	dsn := fmt.Sprintf("http://admin:abc123@%s:%s", host, port.Port())
	// A fresh single node logs errors until the system databases exist.
	for _, db := range []string{"_users", "_replicator"} {
		if err := put(ctx, dsn+"/"+db, nil); err != nil {
			return "", err
		}
	}
	return dsn, nil
}

func put(ctx context.Context, url string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusPreconditionFailed:
		return nil
	}
	return fmt.Errorf("failed to create %s: %s", url, res.Status)
}
