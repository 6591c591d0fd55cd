// Package chat holds the platform-neutral types the relay hands to a sink:
// the outbound message and the destination it is addressed to.
package chat

import "time"

// Color is a 24-bit RGB accent color (0xRRGGBB).
type Color int

// RGB builds a Color from its components.
func RGB(r, g, b uint8) Color {
	return Color(int(r)<<16 | int(g)<<8 | int(b))
}

// Message is a structured chat message ready for delivery.
type Message struct {
	Title     string
	Body      string
	Footer    string // optional
	Timestamp time.Time
	Color     Color
}
