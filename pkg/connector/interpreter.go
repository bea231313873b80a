package connector

import (
	"bytes"
	"net/http"

	"github.com/DBCDK/opencat-business-connector/pkg/clients"
	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/json"
)

// ServerFaultMessage replaces the body of a 500 response.
const ServerFaultMessage = "Det skete en uventet fejl i opencat-business"

// assertStatus maps any status other than 200 OK to a typed error. A 500 is
// reported with a fixed message; any other body is assumed to be a message
// for the end user and is passed on verbatim.
func assertStatus(resp *clients.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusInternalServerError:
		return errors.New(errors.ErrorTypeServerFault, ServerFaultMessage).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(resp.Body))
	default:
		return errors.New(errors.ErrorTypeRejected, string(resp.Body)).
			WithDetail("status", resp.StatusCode)
	}
}

// decodeEntity decodes the response body into a T. A body that decodes to
// null, or a body that is empty or blank, is a protocol error.
func decodeEntity[T any](resp *clients.Response, entity string) (T, error) {
	var out *T
	if body := bytes.TrimSpace(resp.Body); len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			var zero T
			return zero, errors.Wrap(err, errors.ErrorTypeEncoding, "failed to decode "+entity+" entity")
		}
	}
	if out == nil {
		var zero T
		return zero, errors.Newf(errors.ErrorTypeProtocol,
			"OpencatBusiness returned with null-valued %s entity", entity)
	}
	return *out, nil
}
