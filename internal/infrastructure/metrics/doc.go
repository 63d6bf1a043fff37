// Package metrics exposes Prometheus instruments for Greenhouse Core.
//
// The control loop records cycle outcomes, decision counts, safety-gate
// rejections and relay states; the API server mounts the exposition
// handler at /metrics.
package metrics
