/**
 * @description
 * This file provides a simulated partner client for local running and tests.
 * It returns a RECEIVED acknowledgement synchronously with no network effect
 * and is interchangeable with the HTTP client.
 */
package vaspclient

import (
	"context"
	"log"

	"github.com/shopspring/decimal"
)

// Simulated is a partner client that acknowledges every notification without
// any network call. Err, when set, forces every Initiate to fail; tests use
// this to exercise the notifier-failure path.
type Simulated struct {
	Err error
}

// NewSimulated creates a simulated partner client.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Initiate acknowledges the notification with status RECEIVED.
func (s *Simulated) Initiate(ctx context.Context, vaspID, reference string, amount decimal.Decimal) (*Acknowledgement, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	log.Printf("level=info component=vaspclient mode=simulated msg=\"notification acknowledged\" vasp_id=%s reference=%s amount=%s", vaspID, reference, amount.String())
	return &Acknowledgement{
		VASPID:    vaspID,
		Reference: reference,
		Amount:    amount,
		Status:    StatusReceived,
	}, nil
}
