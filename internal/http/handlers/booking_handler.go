package handlers

import (
	"net/http"
	"strconv"

	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
	"busreserve/internal/http/middleware"
	"busreserve/internal/services"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	Bookings services.BookingService
	Tickets  services.TicketService
}

func (h BookingHandler) service(c *gin.Context) services.BookingService {
	svc := h.Bookings
	svc.RequestID = middleware.GetRequestID(c)
	return svc
}

type passengerContact struct {
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	NIC    string `json:"nic"`
	Email  string `json:"email"`
}

type commitRequest struct {
	tripFields
	SelectedSeats   []string                `json:"selectedSeats"`
	SeatAllocations []models.SeatAllocation `json:"seatAllocations"`
	Passengers      []models.Passenger      `json:"passengers"`
	Passenger       passengerContact        `json:"passenger"`
	BoardingPoint   Point                   `json:"boardingPoint"`
	DroppingPoint   Point                   `json:"droppingPoint"`
	ClientID        string                  `json:"clientId"`
}

func (r commitRequest) input() (services.CommitInput, error) {
	trip, err := r.trip()
	if err != nil {
		return services.CommitInput{}, err
	}
	return services.CommitInput{
		Trip:            trip,
		SelectedSeats:   r.SelectedSeats,
		SeatAllocations: r.SeatAllocations,
		Passengers:      r.Passengers,
		Contact: models.Contact{
			FullName: r.Passenger.Name,
			Phone:    r.Passenger.Mobile,
			NIC:      r.Passenger.NIC,
			Email:    r.Passenger.Email,
		},
		BoardingPoint: string(r.BoardingPoint),
		DroppingPoint: string(r.DroppingPoint),
	}, nil
}

// POST /api/bookings
func (h BookingHandler) Create(c *gin.Context) {
	var req commitRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if in.Owner, err = resolveOwner(c, req.ClientID); err != nil {
		RespondDomainError(c, err)
		return
	}
	in.IP = c.ClientIP()

	booking, err := h.service(c).Commit(c.Request.Context(), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Booking created successfully.", "booking": booking})
}

type manualRequest struct {
	commitRequest
	PassengerInfo passengerContact `json:"passengerInfo"`
	From          Point            `json:"from"`
	To            Point            `json:"to"`
}

// POST /api/operator/bookings/manual
func (h BookingHandler) CreateManual(c *gin.Context) {
	var req manualRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	if req.Passenger == (passengerContact{}) {
		req.Passenger = req.PassengerInfo
	}
	if req.BoardingPoint == "" {
		req.BoardingPoint = req.From
	}
	if req.DroppingPoint == "" {
		req.DroppingPoint = req.To
	}
	in, err := req.input()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	in.IP = c.ClientIP()

	booking, err := h.service(c).CommitManual(c.Request.Context(), services.ManualInput{
		CommitInput: in,
		StaffID:     middleware.UserID(c),
		StaffRole:   middleware.UserRole(c),
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "booking": booking})
}

// DELETE /api/bookings/:id
func (h BookingHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service(c).Cancel(c.Request.Context(), id, middleware.UserID(c), c.ClientIP()); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking cancelled successfully."})
}

// GET /api/bookings/me
func (h BookingHandler) Mine(c *gin.Context) {
	out, err := h.service(c).ListMine(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// GET /api/bookings/admin/bookings?date=&from=&to=&userEmail=&limit=&offset=
func (h BookingHandler) Admin(c *gin.Context) {
	f := models.BookingFilter{
		Date:          c.Query("date"),
		BoardingPoint: c.Query("from"),
		DroppingPoint: c.Query("to"),
		UserEmail:     c.Query("userEmail"),
	}
	var err error
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			RespondDomainError(c, domain.ValidationError{Field: "limit", Msg: "must be a number", Err: err})
			return
		}
	}
	if v := c.Query("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			RespondDomainError(c, domain.ValidationError{Field: "offset", Msg: "must be a number", Err: err})
			return
		}
	}

	out, err := h.service(c).ListAll(c.Request.Context(), middleware.UserRole(c), f)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out, "count": len(out)})
}

// GET /api/bookings/:id/ticket
func (h BookingHandler) Ticket(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	tickets := h.Tickets
	tickets.Bookings = h.service(c)
	pdf, filename, err := tickets.GenerateETicket(c.Request.Context(), id, middleware.UserID(c), middleware.UserRole(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
