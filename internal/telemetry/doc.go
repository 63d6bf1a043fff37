// Package telemetry collects and validates greenhouse sensor readings.
//
// Sensor nodes publish one metric per message on
// greenhouse/telemetry/{sensor_id}. The Ingestor parses each uplink,
// the Processor enforces hard validity ranges, and the Store keeps the
// latest reading plus a bounded in-memory history per measurement for
// trend estimation.
//
// Stale readings are filtered at snapshot time, not at ingest time: a
// measurement whose latest reading is older than the configured maximum
// age is absent from the cycle snapshot and its decision rules are
// skipped.
package telemetry
