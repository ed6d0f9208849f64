package handlers

import (
	"net/http"

	"busreserve/internal/domain"
	"busreserve/internal/http/middleware"
	"busreserve/internal/services"

	"github.com/gin-gonic/gin"
)

type AvailabilityHandler struct {
	Availability services.AvailabilityService
}

func (h AvailabilityHandler) service(c *gin.Context) services.AvailabilityService {
	svc := h.Availability
	svc.RequestID = middleware.GetRequestID(c)
	return svc
}

// GET /api/bookings/availability/:busId?date=&departureTime=
func (h AvailabilityHandler) Get(c *gin.Context) {
	trip, err := domain.ParseTrip(c.Param("busId"), c.Query("date"), c.Query("departureTime"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := h.service(c).GetAvailability(c.Request.Context(), trip)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, out)
}

// GET /api/bookings/booked-seats?busId=&date=&departureTime=
func (h AvailabilityHandler) BookedSeats(c *gin.Context) {
	trip, err := domain.ParseTrip(c.Query("busId"), c.Query("date"), c.Query("departureTime"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := h.service(c).GetBookedSeats(c.Request.Context(), trip)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, out)
}
