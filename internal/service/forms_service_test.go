package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/responseable/onboarding/internal/models"
)

type mockEmailSender struct {
	to      string
	subject string
	body    string
	err     error
	calls   int
}

func (m *mockEmailSender) Send(_ context.Context, to, subject, htmlBody string) error {
	m.calls++
	m.to = to
	m.subject = subject
	m.body = htmlBody
	return m.err
}

func TestFormsService_PrefilledFormLink(t *testing.T) {
	s := NewFormsService("IlRPTScI", &mockEmailSender{}, 5)

	t.Run("encodes values in the fragment", func(t *testing.T) {
		link := s.PrefilledFormLink("IlRPTScI", map[string]string{
			"email":      "jordan.lee@example.com",
			"first_name": "Jordan Lee",
		})

		assert.Equal(t, "https://form.typeform.com/to/IlRPTScI#email=jordan.lee%40example.com&first_name=Jordan+Lee", link)
	})

	t.Run("skips blank values", func(t *testing.T) {
		link := s.PrefilledFormLink("IlRPTScI", map[string]string{
			"email":      "jordan.lee@example.com",
			"first_name": "   ",
		})

		assert.Equal(t, "https://form.typeform.com/to/IlRPTScI#email=jordan.lee%40example.com", link)
	})

	t.Run("no fragment without prefill", func(t *testing.T) {
		link := s.PrefilledFormLink("IlRPTScI", nil)
		assert.Equal(t, "https://form.typeform.com/to/IlRPTScI", link)
	})
}

func TestFormsService_QRCodeURL(t *testing.T) {
	s := NewFormsService("IlRPTScI", &mockEmailSender{}, 5)

	got := s.QRCodeURL("https://form.typeform.com/to/IlRPTScI#a=1")

	assert.Equal(t, "https://api.qrserver.com/v1/create-qr-code/?size=220x220&data=https%3A%2F%2Fform.typeform.com%2Fto%2FIlRPTScI%23a%3D1", got)
}

func TestFormsService_SendAdditionalDetailsForm(t *testing.T) {
	driver := &models.Driver{
		ID:        "5",
		FirstName: "Jordan",
		LastName:  "Lee",
		Email:     "jordan.lee@example.com",
		Phone:     "07700900005",
	}

	t.Run("sends the invitation with a prefilled link", func(t *testing.T) {
		sender := &mockEmailSender{}
		s := NewFormsService("IlRPTScI", sender, 5)

		err := s.SendAdditionalDetailsForm(context.Background(), driver)

		require.NoError(t, err)
		assert.Equal(t, 1, sender.calls)
		assert.Equal(t, "jordan.lee@example.com", sender.to)
		assert.Equal(t, "Driver Application Follow-up", sender.subject)
		assert.Contains(t, sender.body, "form.typeform.com/to/IlRPTScI#")
		assert.Contains(t, sender.body, "monday_id=5")
		assert.Contains(t, sender.body, "Hi Jordan,")
		assert.Contains(t, sender.body, "api.qrserver.com")
	})

	t.Run("propagates sender errors", func(t *testing.T) {
		sender := &mockEmailSender{err: errors.New("smtp down")}
		s := NewFormsService("IlRPTScI", sender, 5)

		err := s.SendAdditionalDetailsForm(context.Background(), driver)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp down")
	})

	t.Run("respects a cancelled context at the rate limiter", func(t *testing.T) {
		sender := &mockEmailSender{}
		s := NewFormsService("IlRPTScI", sender, 1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Drain the limiter's initial burst first.
		require.NoError(t, s.SendAdditionalDetailsForm(context.Background(), driver))

		err := s.SendAdditionalDetailsForm(ctx, driver)
		require.Error(t, err)
		assert.Equal(t, 1, sender.calls)
	})
}
