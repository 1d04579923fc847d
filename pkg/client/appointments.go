package client

import (
	"context"
	"net/http"
	"net/url"

	apperrors "appointease/pkg/errors"
	httputil "appointease/pkg/http"
	"appointease/pkg/model"
)

// BookOutcome is the decoded answer to a booking attempt. Exactly one of
// Booking and Conflict is set for 200 and 409 answers.
type BookOutcome struct {
	StatusCode int
	Replayed   bool
	Booking    *model.BookingResponse
	Conflict   *model.ConflictResponse
	Raw        []byte
}

// AppointmentsClient talks to the appointments API.
type AppointmentsClient struct {
	http *HttpClient
}

func NewAppointmentsClient(baseURL string) *AppointmentsClient {
	return &AppointmentsClient{http: NewHttpClient(baseURL)}
}

func (c *AppointmentsClient) HTTP() *HttpClient {
	return c.http
}

func (c *AppointmentsClient) Book(ctx context.Context, req *model.AppointmentRequest, idempotencyKey string) (*BookOutcome, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[httputil.HeaderIdempotencyKey] = idempotencyKey
	}

	resp, err := c.http.POSTWithHeaders(ctx, "/api/v1/appointments", req, headers)
	if err != nil {
		return nil, err
	}

	out := &BookOutcome{
		StatusCode: resp.StatusCode,
		Replayed:   resp.Header.Get(httputil.HeaderIdempotentReplayed) == "true",
		Raw:        resp.Body,
	}
	switch resp.StatusCode {
	case http.StatusOK:
		out.Booking = &model.BookingResponse{}
		if err := resp.DecodeJSON(out.Booking); err != nil {
			return nil, err
		}
	case http.StatusConflict:
		var conflict model.ConflictResponse
		if err := resp.DecodeJSON(&conflict); err != nil {
			return nil, err
		}
		if conflict.Code == apperrors.CodeSlotTaken {
			out.Conflict = &conflict
		}
	}
	return out, nil
}

func (c *AppointmentsClient) Cancel(ctx context.Context, id string) (*model.CancelResponse, *Response, error) {
	resp, err := c.http.DELETE(ctx, "/api/v1/appointments/"+url.PathEscape(id))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp, nil
	}
	var out model.CancelResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, resp, err
	}
	return &out, resp, nil
}

func (c *AppointmentsClient) Availability(ctx context.Context, req *model.AvailabilityRequest) (*model.AvailabilityResponse, *Response, error) {
	resp, err := c.http.POST(ctx, "/api/v1/availability", req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp, nil
	}
	var out model.AvailabilityResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, resp, err
	}
	return &out, resp, nil
}

func (c *AppointmentsClient) LockStats(ctx context.Context) (*model.LockStats, *Response, error) {
	resp, err := c.http.GET(ctx, "/api/v1/realtime/stats")
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp, nil
	}
	var out model.LockStats
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, resp, err
	}
	return &out, resp, nil
}
