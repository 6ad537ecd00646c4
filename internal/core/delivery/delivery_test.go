package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

var rawMessage = []byte("From: jack@sg1.mil\r\nTo: team@sg1.mil\r\nSubject: Gate\r\n\r\nDial home.\r\n")

type sent struct {
	from, to string
	raw      []byte
}

// recordingForwarder records forwards and fails for addresses in failFor.
type recordingForwarder struct {
	mu      sync.Mutex
	sent    []sent
	failFor map[string]error
}

func (f *recordingForwarder) Name() string { return "test" }

func (f *recordingForwarder) Forward(_ context.Context, from, to string, raw []byte) error {
	if err := f.failFor[to]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{from: from, to: to, raw: append([]byte(nil), raw...)})
	return nil
}

func (f *recordingForwarder) recipients() []string {
	out := []string{}
	for _, s := range f.sent {
		out = append(out, s.to)
	}
	return out
}

func inbound() types.Inbound {
	return types.Inbound{From: "jack@sg1.mil", To: "team@sg1.mil", Raw: rawMessage}
}

func TestExecutor_Reject(t *testing.T) {
	fwd := &recordingForwarder{}
	logger, _ := logtest.NewNullLogger()

	outcome, err := NewExecutor(fwd, logger).Execute(context.Background(), types.Reject("Undeliverable"), inbound())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Rejected: true, Reason: "Undeliverable"}, outcome)
	assert.Empty(t, fwd.sent)
}

func TestExecutor_ForwardInOrder(t *testing.T) {
	fwd := &recordingForwarder{}
	logger, _ := logtest.NewNullLogger()

	action := types.Forward([]string{"c@sg1.mil", "o@sg1.mil"})
	outcome, err := NewExecutor(fwd, logger).Execute(context.Background(), action, inbound())
	require.NoError(t, err)
	assert.Equal(t, []string{"c@sg1.mil", "o@sg1.mil"}, outcome.Delivered)
	assert.Equal(t, []string{"c@sg1.mil", "o@sg1.mil"}, fwd.recipients())
	for _, s := range fwd.sent {
		assert.Equal(t, "jack@sg1.mil", s.from)
		assert.Equal(t, rawMessage, s.raw)
	}
}

func TestExecutor_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("connection refused")
	fwd := &recordingForwarder{failFor: map[string]error{"o@sg1.mil": boom}}
	logger, _ := logtest.NewNullLogger()

	action := types.Forward([]string{"c@sg1.mil", "o@sg1.mil", "j@sg1.mil"})
	outcome, err := NewExecutor(fwd, logger).Execute(context.Background(), action, inbound())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "o@sg1.mil")
	assert.Equal(t, []string{"c@sg1.mil"}, outcome.Delivered)
	assert.Equal(t, []string{"c@sg1.mil"}, fwd.recipients())
}

func TestExecutor_EmptyForwardIsDropped(t *testing.T) {
	fwd := &recordingForwarder{}
	logger, hook := logtest.NewNullLogger()

	outcome, err := NewExecutor(fwd, logger).Execute(context.Background(), types.Forward([]string{}), inbound())
	require.NoError(t, err)
	assert.True(t, outcome.Dropped)
	assert.Empty(t, fwd.sent)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestExecutor_UnknownKind(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewExecutor(&recordingForwarder{}, logger).Execute(context.Background(), types.ResolvedAction{}, inbound())
	assert.Error(t, err)
}

func onErrorConfig() *types.Config {
	return &types.Config{
		ForwardAddresses: []types.ForwardAddress{
			{Name: "postmaster", Email: "pm@sg1.mil"},
			{Name: "admin", Email: "hammond@sg1.mil"},
		},
		Rules: []types.Rule{{Action: types.RejectWithReason("no")}},
		OnError: types.OnError{
			ForwardOriginalMessageTo: "postmaster",
			SendErrorReportTo:        "admin",
		},
	}
}

func enrichedFor(in types.Inbound) *types.EnrichedMessage {
	return &types.EnrichedMessage{
		Envelope: types.Envelope{
			From: types.EmailAddress{EmailAddress: in.From, LocalPart: "jack", Domain: "sg1.mil"},
		},
		Headers: types.NewHeaders(
			types.HeaderField{Name: "Subject", Value: "Gate"},
			types.HeaderField{Name: "Received", Value: "a"},
			types.HeaderField{Name: "Received", Value: "b"},
			types.HeaderField{Name: "received", Value: "c"},
		),
	}
}

func TestFallback_ForwardsOriginalAndReports(t *testing.T) {
	fwd := &recordingForwarder{}
	logger, hook := logtest.NewNullLogger()
	fb := NewFallback(fwd, logger)
	fb.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	in := inbound()
	handled := fb.Handle(context.Background(), onErrorConfig(), in, enrichedFor(in), "resolve", errors.New("rule #0: bad operator"))
	assert.True(t, handled)

	require.Len(t, fwd.sent, 2)
	assert.Equal(t, "pm@sg1.mil", fwd.sent[0].to)
	assert.Equal(t, rawMessage, fwd.sent[0].raw)

	report := fwd.sent[1]
	assert.Equal(t, "hammond@sg1.mil", report.to)
	assert.Equal(t, "postmaster@sg1.mil", report.from)

	mr, err := mail.CreateReader(bytes.NewReader(report.raw))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Message processing failed: resolve", subject)
	assert.Equal(t, "auto-generated", mr.Header.Get("Auto-Submitted"))
	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Error:  rule #0: bad operator")
	assert.Contains(t, string(body), "Subject: Gate")

	entry := hook.AllEntries()[0]
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "resolve", entry.Data[FieldErrorReason])
	assert.Equal(t, "rule #0: bad operator", entry.Data[FieldErrorMessage])
	assert.Equal(t, "Gate", entry.Data["Subject"])
	assert.Equal(t, "a, b, c", entry.Data["Received"])
	assert.NotContains(t, entry.Data, "received")
}

func TestFallback_WithoutOnError(t *testing.T) {
	fwd := &recordingForwarder{}
	logger, hook := logtest.NewNullLogger()

	cfg := onErrorConfig()
	cfg.OnError = types.OnError{}
	handled := NewFallback(fwd, logger).Handle(context.Background(), cfg, inbound(), nil, "enrich", errors.New("malformed message"))
	assert.False(t, handled)
	assert.Empty(t, fwd.sent)
	assert.Len(t, hook.AllEntries(), 1)

	handled = NewFallback(fwd, logger).Handle(context.Background(), nil, inbound(), nil, "enrich", errors.New("malformed message"))
	assert.False(t, handled)
}

func TestFallback_ForwardFailureIsLogged(t *testing.T) {
	fwd := &recordingForwarder{failFor: map[string]error{"pm@sg1.mil": errors.New("down")}}
	logger, hook := logtest.NewNullLogger()

	handled := NewFallback(fwd, logger).Handle(context.Background(), onErrorConfig(), inbound(), nil, "deliver", errors.New("relay down"))
	assert.False(t, handled)
	assert.Equal(t, []string{"hammond@sg1.mil"}, fwd.recipients(), "report still goes out")
	assert.Equal(t, "postmaster@sg1.mil", fwd.sent[0].from, "domain taken from the envelope")
	assert.GreaterOrEqual(t, len(hook.AllEntries()), 2)
}

func TestFallback_UnknownTargetName(t *testing.T) {
	fwd := &recordingForwarder{}
	logger, _ := logtest.NewNullLogger()

	cfg := onErrorConfig()
	cfg.OnError.ForwardOriginalMessageTo = "nobody"
	handled := NewFallback(fwd, logger).Handle(context.Background(), cfg, inbound(), nil, "resolve", errors.New("x"))
	assert.False(t, handled)
	assert.Equal(t, []string{"hammond@sg1.mil"}, fwd.recipients())
}

type mockSESClient struct {
	lastInput *sesv2.SendEmailInput
	err       error
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSES_Forward(t *testing.T) {
	mock := &mockSESClient{}
	s := NewSESWithClient("", mock)
	assert.Equal(t, "ses", s.Name())

	require.NoError(t, s.Forward(context.Background(), "jack@sg1.mil", "c@sg1.mil", rawMessage))
	in := mock.lastInput
	assert.Equal(t, "jack@sg1.mil", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"c@sg1.mil"}, in.Destination.ToAddresses)
	assert.Equal(t, rawMessage, in.Content.Raw.Data)
	assert.Nil(t, in.Content.Simple)
}

func TestSES_SenderOverride(t *testing.T) {
	mock := &mockSESClient{}
	require.NoError(t, NewSESWithClient("relay@sg1.mil", mock).Forward(context.Background(), "", "c@sg1.mil", rawMessage))
	assert.Equal(t, "relay@sg1.mil", aws.ToString(mock.lastInput.FromEmailAddress))
}

func TestSES_Error(t *testing.T) {
	mock := &mockSESClient{err: &sestypes.MessageRejected{Message: aws.String("address blacklisted")}}
	err := NewSESWithClient("", mock).Forward(context.Background(), "jack@sg1.mil", "c@sg1.mil", rawMessage)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestStdout_Forward(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	require.NoError(t, s.Forward(context.Background(), "jack@sg1.mil", "c@sg1.mil", []byte("Subject: x\r\n\r\nbody")))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "--- forward from=<jack@sg1.mil> to=<c@sg1.mil> bytes=18\n"), out)
	assert.True(t, strings.HasSuffix(out, "body\n"))
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("timeout"), false},
		{"5xx", &smtp.SMTPError{Code: 550, Message: "no such user"}, true},
		{"4xx", &smtp.SMTPError{Code: 451, Message: "try later"}, false},
		{"wrapped 5xx", errors.Join(errors.New("rcpt"), &smtp.SMTPError{Code: 554}), true},
		{"ses unverified", &sestypes.MailFromDomainNotVerifiedException{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestNew(t *testing.T) {
	f, err := New(context.Background(), config.DeliveryConfig{Transport: config.TransportStdout}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "stdout", f.Name())

	f, err = New(context.Background(), config.DeliveryConfig{Transport: config.TransportSMTP, Relay: config.RelayConfig{Addr: "127.0.0.1:25"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "smtp", f.Name())

	_, err = New(context.Background(), config.DeliveryConfig{Transport: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, ErrNoTransport)
}

// relayBackend is an in-process SMTP server recording what it receives.
type relayBackend struct {
	mu       sync.Mutex
	from     string
	to       []string
	data     []byte
	rejectTo string
}

func (b *relayBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &relaySession{b: b}, nil
}

type relaySession struct{ b *relayBackend }

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if to == s.b.rejectTo {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.to = append(s.b.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data = data
	return nil
}

func (s *relaySession) Reset()        {}
func (s *relaySession) Logout() error { return nil }

func startRelay(t *testing.T, be *relayBackend) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := smtp.NewServer(be)
	srv.Domain = "relay.test"
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return l.Addr().String()
}

func TestSMTPRelay_Forward(t *testing.T) {
	be := &relayBackend{}
	relay := NewSMTPRelay(startRelay(t, be), "sieve.test")

	require.NoError(t, relay.Forward(context.Background(), "jack@sg1.mil", "c@sg1.mil", rawMessage))

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, "jack@sg1.mil", be.from)
	assert.Equal(t, []string{"c@sg1.mil"}, be.to)
	assert.Equal(t, strings.ReplaceAll(string(rawMessage), "\r", ""), strings.ReplaceAll(string(be.data), "\r", ""))
}

func TestSMTPRelay_PermanentRejection(t *testing.T) {
	be := &relayBackend{rejectTo: "gone@sg1.mil"}
	relay := NewSMTPRelay(startRelay(t, be), "")

	err := relay.Forward(context.Background(), "jack@sg1.mil", "gone@sg1.mil", rawMessage)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestSMTPRelay_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	err = NewSMTPRelay(addr, "").Forward(context.Background(), "a@b.c", "d@e.f", rawMessage)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	err = NewSMTPRelay("", "").Forward(context.Background(), "a@b.c", "d@e.f", rawMessage)
	assert.Error(t, err)
}
