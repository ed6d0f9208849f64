package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"busreserve/internal/domain"
	"busreserve/internal/http/middleware"
	"busreserve/internal/services"

	"github.com/gin-gonic/gin"
)

// RespondError sends a plain error payload with request_id included.
func RespondError(c *gin.Context, status int, message string, err error) {
	payload := gin.H{
		"message":    message,
		"request_id": middleware.GetRequestID(c),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, payload)
}

// BindJSONOrError ensures body is present and parsable.
func BindJSONOrError[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		RespondError(c, http.StatusBadRequest, "request body is empty", nil)
		return false
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid payload", err)
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body, used by endpoints that also take
// query parameters (DELETE with or without a body).
func bindOptionalJSON[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil {
		return true
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid payload", err)
		return false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid payload", err)
		return false
	}
	return true
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		RespondDomainError(c, domain.ValidationError{Field: name, Msg: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

// FlexID decodes an id sent either as a JSON number or as a numeric string.
type FlexID int64

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return domain.ValidationError{Field: "busId", Msg: "must be numeric", Err: err}
	}
	*f = FlexID(v)
	return nil
}

// Point decodes a stop given either as "Colombo" or as {"point": "Colombo"}.
type Point string

func (p *Point) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = Point(s)
		return nil
	}
	var obj struct {
		Point string `json:"point"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*p = Point(obj.Point)
	return nil
}

// tripFields is the trip key as it arrives in request bodies.
type tripFields struct {
	BusID         FlexID `json:"busId"`
	Date          string `json:"date"`
	DepartureTime string `json:"departureTime"`
}

func (t tripFields) trip() (domain.Trip, error) {
	return domain.NewTrip(int64(t.BusID), t.Date, t.DepartureTime)
}

// resolveOwner applies the owner precedence to this request.
func resolveOwner(c *gin.Context, bodyClientID string) (domain.OwnerKey, error) {
	token := middleware.ClientID(c)
	if token == "" {
		token = bodyClientID
	}
	return services.ResolveOwner(services.OwnerInput{
		UserID:      middleware.UserID(c),
		ClientToken: token,
		RemoteAddr:  c.ClientIP(),
	})
}
