package telemetry

import "errors"

var (
	ErrRegisterCollector            = errors.New("failed to register prometheus collector")
	ErrNilPublisher                 = errors.New("nil redis publisher")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
)
