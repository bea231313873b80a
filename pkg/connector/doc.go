// Package connector is the typed facade over the opencat-business HTTP API.
//
// A Connector exposes one method per service operation. Each method encodes
// its records with the configured marc.Codec, POSTs a JSON payload to
// <base URL>/api/v1/<operation> and interprets the answer:
//
//   - 200 with a usable entity returns the decoded result
//   - 200 with a null or empty entity fails with a protocol error
//   - 500 fails with a server fault carrying ServerFaultMessage
//   - any other status fails with a rejection whose message is the body
//
// Network failures and 404 answers are retried according to the
// clients.RetryPolicy; an exhausted budget fails with a transport error.
//
// Every call, successful or not, writes "<operation> took N milliseconds" at
// the configured timing level, notifies the registered CallObservers and is
// recorded as an OpenTelemetry client span.
//
// # Usage
//
//	conn, err := connector.New("http://opencat-business:8080",
//	    connector.WithLogger(log),
//	    connector.WithTimingLevel(logger.TimingDebug),
//	)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	ok, err := conn.CheckTemplate(ctx, "BCIbog", "dbc", "dbc")
//
// Applications built with fx can use Module, which reads a
// *config.ConnectorConfig and closes the connector on shutdown.
//
// A Connector is safe for concurrent use.
package connector
