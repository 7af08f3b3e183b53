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

// Package metrics exposes the chat counters on a private prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message delivery paths.
const (
	PathSocket = "socket"
	PathREST   = "rest"
)

type Metrics struct {
	registry *prometheus.Registry

	Connections prometheus.Gauge
	Messages    *prometheus.CounterVec
	Events      *prometheus.CounterVec
	Errors      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections",
			Help: "Number of open chat socket connections",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages persisted, by the path they arrived on",
		}, []string{"path"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound socket events, by event name",
		}, []string{"event"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_errors_total",
			Help: "Errors returned to clients, by event name",
		}, []string{"event"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
