package handlers

import (
	"net/http"

	"busreserve/internal/domain"
	"busreserve/internal/http/middleware"
	"busreserve/internal/services"
	"busreserve/internal/utils"

	"github.com/gin-gonic/gin"
)

type SeatLockHandler struct {
	Locks services.SeatLockService
}

func (h SeatLockHandler) service(c *gin.Context) services.SeatLockService {
	svc := h.Locks
	svc.RequestID = middleware.GetRequestID(c)
	return svc
}

type lockRequest struct {
	tripFields
	Seats       []string          `json:"seats"`
	ClientID    string            `json:"clientId"`
	LockMinutes int               `json:"lockMinutes"`
	SeatGenders map[string]string `json:"seatGenders"`
}

// POST /api/bookings/lock
func (h SeatLockHandler) Lock(c *gin.Context) {
	var req lockRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	trip, err := req.trip()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	owner, err := resolveOwner(c, req.ClientID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	res, err := h.service(c).Acquire(c.Request.Context(), services.AcquireInput{
		Trip:       trip,
		Seats:      req.Seats,
		Owner:      owner,
		TTLMinutes: req.LockMinutes,
		Genders:    req.SeatGenders,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	status := http.StatusOK
	if !res.AllOK() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{
		"ok":             res.AllOK(),
		"results":        res.Results,
		"expiresAt":      res.ExpiresAt,
		"lockDurationMs": res.TTL.Milliseconds(),
	})
}

type releaseRequest struct {
	tripFields
	Seats    []string `json:"seats"`
	ClientID string   `json:"clientId"`
}

// DELETE|POST /api/bookings/release
func (h SeatLockHandler) Release(c *gin.Context) {
	var req releaseRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.Date == "" {
		req.Date = c.Query("date")
	}
	if req.DepartureTime == "" {
		req.DepartureTime = c.Query("departureTime")
	}
	if len(req.Seats) == 0 {
		req.Seats = utils.SplitSeatList(c.Query("seats"))
	}
	trip, err := req.trip()
	if req.BusID == 0 {
		trip, err = domain.ParseTrip(c.Query("busId"), req.Date, req.DepartureTime)
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	owner, err := resolveOwner(c, req.ClientID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	n, err := h.service(c).Release(c.Request.Context(), trip, req.Seats, owner)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "released": n})
}

// GET /api/bookings/lock-remaining?busId=&date=&departureTime=&seats=
func (h SeatLockHandler) Remaining(c *gin.Context) {
	trip, err := domain.ParseTrip(c.Query("busId"), c.Query("date"), c.Query("departureTime"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	owner, err := resolveOwner(c, c.Query("clientId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	hold, err := h.service(c).RemainingHold(c.Request.Context(), trip, owner, utils.SplitSeatList(c.Query("seats")))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"remainingMs": hold.RemainingMillis(),
		"expiresAt":   hold.ExpiresAt,
	})
}
