// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Connections.Inc()
	m.Messages.WithLabelValues(PathSocket).Inc()
	m.Messages.WithLabelValues(PathSocket).Inc()
	m.Events.WithLabelValues("typing:start").Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues(PathSocket)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Connections))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `chat_messages_total{path="socket"} 2`)
	require.Contains(t, string(body), "chat_connections 1")

	// Each instance has its own registry.
	require.NotPanics(t, func() { New() })
}
