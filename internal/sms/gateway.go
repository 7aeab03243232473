package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"rostergate/internal/config"
	"rostergate/internal/util"
)

// Gateway delivers a verification code to a phone number. Implementations do
// not retry; retry policy belongs to the transport provider.
type Gateway interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}

// TwilioGateway sends codes through the Twilio messaging API with a bounded
// per-call timeout.
type TwilioGateway struct {
	client     *twilio.RestClient
	fromNumber string
	timeout    time.Duration
}

func NewTwilioGateway(cfg *config.Config) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.Twilio.AccountSID,
		Password: cfg.Twilio.AuthToken,
	})

	return &TwilioGateway{
		client:     client,
		fromNumber: cfg.Twilio.FromNumber,
		timeout:    cfg.OTP.SMSSendTimeout,
	}
}

func (g *TwilioGateway) SendCode(ctx context.Context, phoneNumber, code string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phoneNumber)
	params.SetFrom(g.fromNumber)
	params.SetBody(fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code))

	done := make(chan error, 1)
	go func() {
		_, err := g.client.Api.CreateMessage(params)
		done <- err
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			util.Error("Twilio message send failed",
				zap.String("phone_number", phoneNumber),
				zap.Error(err))
			return fmt.Errorf("twilio send failed: %w", err)
		}
		util.Debug("Verification SMS dispatched", zap.String("phone_number", phoneNumber))
		return nil
	case <-timer.C:
		return fmt.Errorf("twilio send timed out after %s", g.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoopGateway logs the code instead of sending it. Development only.
type NoopGateway struct{}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

func (g *NoopGateway) SendCode(ctx context.Context, phoneNumber, code string) error {
	util.Warn("SMS gateway disabled, code not delivered",
		zap.String("phone_number", phoneNumber),
		zap.String("code", code))
	return nil
}
