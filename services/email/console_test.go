package emailsvc

import (
	"context"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/testutil"
)

func TestConsoleServiceMock_Send(t *testing.T) {
	svc := NewConsoleServiceMock(testutil.NewConfig())
	ctx := context.Background()

	err := svc.Send(ctx, core.NewEmailMessage("Ada <ada@school.test>", "Student S1 at-risk alert", "Student S1 flagged: Failing grades"))
	assert.NoError(t, err)
	assert.Equal(t, errEmptyMessage, svc.Send(ctx, core.NewEmailMessage("not an address", "s", "b")))
	assert.Equal(t, errEmptyMessage, svc.Send(ctx, core.NewEmailMessage("ada@school.test", "s", "  ")))

	sent := svc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "ada@school.test", sent[0].To[0].Address)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, svc.Send(cctx, core.NewEmailMessage("ada@school.test", "s", "b")))
}

func TestConsoleService_format(t *testing.T) {
	conf := testutil.NewConfig()
	svc := consoleService{defaultFromEmail: conf.DefaultFromEmail(), subjPrefix: "[MiniERP] "}

	out := svc.format(core.EmailMessage{
		To:      []mail.Address{{Name: "Ada", Address: "ada@school.test"}},
		Subject: "Hello",
		Body:    "Body text",
	})
	assert.True(t, strings.Contains(out, "Subject: [MiniERP] Hello\r\n"))
	assert.True(t, strings.Contains(out, "To: \"Ada\" <ada@school.test>\r\n"))
	assert.True(t, strings.HasSuffix(out, "\r\nBody text\r\n"))
	assert.False(t, strings.Contains(out, "CC:"))
}
