package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"busreserve/internal/domain/models"
	"busreserve/internal/utils"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

const ticketCurrency = "Rs"

// TicketService renders booking documents.
type TicketService struct {
	Bookings BookingService
	// Loader replaces the booking lookup; tests use it.
	Loader func(ctx context.Context, bookingID, userID int64, role string) (models.Booking, error)
}

// GenerateETicket returns the PDF bytes and a download filename.
func (s TicketService) GenerateETicket(ctx context.Context, bookingID, userID int64, role string) ([]byte, string, error) {
	load := s.Loader
	if load == nil {
		load = s.Bookings.Get
	}
	b, err := load(ctx, bookingID, userID, role)
	if err != nil {
		return nil, "", err
	}
	return buildETicketPDF(b)
}

func buildETicketPDF(b models.Booking) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+b.BookingNo, false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")

	// Conductors scan the booking number at boarding.
	qr, err := qrcode.Encode(b.BookingNo, qrcode.Medium, 256)
	if err != nil {
		return nil, "", fmt.Errorf("encode ticket qr: %w", err)
	}
	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 160, 10, 35, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking No     : %s", safe(b.BookingNo, "-")),
		fmt.Sprintf("Passenger      : %s", safe(b.Contact.FullName, "-")),
		fmt.Sprintf("Mobile         : %s", safe(b.Contact.Phone, "-")),
		fmt.Sprintf("NIC            : %s", safe(b.Contact.NIC, "-")),
		fmt.Sprintf("Bus            : #%d", b.Trip.BusID),
		fmt.Sprintf("Date / Time    : %s %s", safe(b.Trip.Date, "-"), safe(b.Trip.DepartureTime, "-")),
		fmt.Sprintf("Route          : %s -> %s", safe(b.BoardingPoint, "-"), safe(b.DroppingPoint, "-")),
		fmt.Sprintf("Seats          : %s", safe(strings.Join(b.Seats, ", "), "-")),
		fmt.Sprintf("Status         : %s", safe(b.PaymentStatus, "-")),
	}
	for _, l := range lines {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}

	if len(b.Passengers) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 7, "Passengers")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, p := range b.Passengers {
			age := "-"
			if p.Age != nil {
				age = fmt.Sprintf("%d", *p.Age)
			}
			pdf.Cell(0, 6, fmt.Sprintf("%-6s %s (%s, %s)", p.Seat, safe(p.Name, "-"), p.Gender, age))
			pdf.Ln(6)
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Fare           : "+utils.FormatAmount(ticketCurrency, b.Price.BaseAmount))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Convenience fee: "+utils.FormatAmount(ticketCurrency, b.Price.ConvenienceFee))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Total          : "+utils.FormatAmount(ticketCurrency, b.Price.TotalAmount))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please present this e-ticket with a valid ID when boarding.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("ETICKET_%s.pdf", safeFilenamePart(b.BookingNo))
	return buf.Bytes(), filename, nil
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
