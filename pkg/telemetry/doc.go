// Package telemetry provides statemachine.Observer implementations that
// export dispatches outside the process.
//
// PrometheusObserver maintains counters, a duration histogram and an
// in-flight gauge per machine. RedisObserver publishes every finished
// dispatch as a JSON Transition on a redis pub/sub channel. Feed fans records
// out to in-process subscribers without ever blocking the dispatch.
//
// Observers are attached when the machine is built:
//
//	prom, err := telemetry.NewPrometheusObserver(prometheus.DefaultRegisterer)
//	if err != nil {
//	    return err
//	}
//	m, err := builder.Build(statemachine.WithObserver(prom, feed))
//
// ConnectRedis and Healthcheck manage the redis client used by
// RedisObserver. RedisConfig is loaded from the environment with
// config.Load.
package telemetry
