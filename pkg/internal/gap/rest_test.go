package gap

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/idempotency"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var general = models.CommunityScope("general")

// newTestServer serves app on a loopback port and returns a client for it.
func newTestServer(t *testing.T, setup func(app *fiber.App)) *RestClient {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
	})
	app.Use(idempotency.New(idempotency.Config{
		Lifetime:          time.Minute,
		KeyHeader:         IdempotencyHeader,
		KeyHeaderValidate: func(string) error { return nil },
	}))
	app.Use(func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer secret" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}
		return c.Next()
	})
	setup(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return &RestClient{
		Endpoint:    "http://" + ln.Addr().String(),
		AccessToken: "secret",
		Timeout:     2 * time.Second,
	}
}

func TestListMessages(t *testing.T) {
	client := newTestServer(t, func(app *fiber.App) {
		app.Get("/channels/messages", func(c *fiber.Ctx) error {
			if c.Query("channel") != general.String() {
				return fiber.NewError(fiber.StatusBadRequest, "wrong channel")
			}
			return c.JSON(fiber.Map{
				"count": 1,
				"data": []models.Message{{
					ID:       "m_1",
					SenderID: "u2",
					Kind:     models.MessageKindText,
					Payload:  models.PayloadRef{Text: "hi"},
					Status:   models.MessageStatusDelivered,
				}},
			})
		})
		app.Get("/channels/members", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"count": 2,
				"data": []models.ChannelMember{
					{AccountID: "u1", PowerLevel: models.PowerLevelOwner},
					{AccountID: "u2", Nick: "Bob"},
				},
			})
		})
	})

	messages, err := client.ListMessages(context.Background(), general)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m_1", messages[0].ID)
	assert.Equal(t, models.MessageStatusDelivered, messages[0].Status)

	members, err := client.ListMembers(context.Background(), general)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.PowerLevelOwner, members[0].PowerLevel)
	assert.Equal(t, "Bob", members[1].DisplayName())
}

func TestCreateMessageIsIdempotent(t *testing.T) {
	var created atomic.Int32
	client := newTestServer(t, func(app *fiber.App) {
		app.Post("/channels/messages", func(c *fiber.Ctx) error {
			var req models.CreateMessageRequest
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			if c.Get(IdempotencyHeader) != req.Uuid {
				return fiber.NewError(fiber.StatusBadRequest, "idempotency key mismatch")
			}
			if req.Text == "buy now" {
				return c.Status(fiber.StatusUnavailableForLegalReasons).SendString("spam")
			}
			created.Add(1)
			return c.JSON(models.Message{
				ID:       "m_502",
				Scope:    req.Channel,
				SenderID: "u1",
				Kind:     req.Kind,
				Payload:  models.PayloadRef{Text: req.Text},
			})
		})
	})

	req := models.CreateMessageRequest{
		Uuid:    services.NewProvisionalID(),
		Channel: general,
		Kind:    models.MessageKindText,
		Text:    "gg wp",
	}
	first, err := client.CreateMessage(context.Background(), req)
	require.NoError(t, err)
	second, err := client.CreateMessage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "m_502", first.ID)
	assert.Equal(t, general, first.Scope)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), created.Load())

	_, err = client.CreateMessage(context.Background(), models.CreateMessageRequest{
		Uuid:    services.NewProvisionalID(),
		Channel: general,
		Text:    "buy now",
	})
	require.Error(t, err)
	assert.True(t, services.IsContentRejected(err))
	assert.False(t, services.IsTransportFault(err))
	assert.Contains(t, err.Error(), "spam")
}

func TestCreateMessageUploadsAttachment(t *testing.T) {
	client := newTestServer(t, func(app *fiber.App) {
		app.Post("/channels/messages/attachments", func(c *fiber.Ctx) error {
			header, err := c.FormFile("file")
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			file, err := header.Open()
			if err != nil {
				return err
			}
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return err
			}
			return c.JSON(models.Message{
				ID:       "m_600",
				SenderID: "u1",
				Kind:     models.MessageKind(c.FormValue("kind")),
				Payload: models.PayloadRef{
					Name: header.Filename,
					Text: c.FormValue("text"),
					URL:  "/attachments/" + c.FormValue("uuid"),
					Size: int64(len(data)),
				},
			})
		})
	})

	message, err := client.CreateMessage(context.Background(), models.CreateMessageRequest{
		Uuid:    "local:upload",
		Channel: general,
		Kind:    models.MessageKindImage,
		Text:    "look",
		Attachment: &models.AttachmentUpload{
			Name: "cat.png",
			Mime: "image/png",
			Data: []byte("not really a png"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageKindImage, message.Kind)
	assert.Equal(t, "cat.png", message.Payload.Name)
	assert.Equal(t, "look", message.Payload.Text)
	assert.Equal(t, "/attachments/local:upload", message.Payload.URL)
	assert.Equal(t, int64(16), message.Payload.Size)
}

func TestRestErrorMapping(t *testing.T) {
	client := newTestServer(t, func(app *fiber.App) {
		app.Put("/channels/read", func(c *fiber.Ctx) error {
			var req models.ReadAnchorRequest
			if err := c.BodyParser(&req); err != nil || req.MessageID != "m_1" {
				return fiber.NewError(fiber.StatusBadRequest, "bad anchor")
			}
			return c.SendStatus(fiber.StatusNoContent)
		})
		app.Delete("/channels/messages", func(c *fiber.Ctx) error {
			var req models.DeleteMessagesRequest
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			if req.Mode == models.DeleteModeGlobal {
				return fiber.NewError(fiber.StatusForbidden, "not your message")
			}
			return c.SendStatus(fiber.StatusServiceUnavailable)
		})
	})

	assert.NoError(t, client.MarkRead(context.Background(), models.ReadAnchorRequest{Channel: general, MessageID: "m_1"}))

	err := client.MarkRead(context.Background(), models.ReadAnchorRequest{Channel: general, MessageID: "m_2"})
	var apiErr *services.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fiber.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "bad anchor", apiErr.Message)

	err = client.DeleteMessages(context.Background(), models.DeleteMessagesRequest{Channel: general, IDs: []string{"m_1"}, Mode: models.DeleteModeGlobal})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fiber.StatusForbidden, apiErr.Status)

	err = client.DeleteMessages(context.Background(), models.DeleteMessagesRequest{Channel: general, IDs: []string{"m_1"}, Mode: models.DeleteModeLocal})
	assert.True(t, services.IsTransportFault(err))

	unauthorized := *client
	unauthorized.AccessToken = ""
	_, err = unauthorized.ListMessages(context.Background(), general)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fiber.StatusUnauthorized, apiErr.Status)
}

func TestRestTransportFaults(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	client := &RestClient{Endpoint: endpoint, Timeout: time.Second}
	_, err = client.ListMessages(context.Background(), general)
	assert.True(t, services.IsTransportFault(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.CreateMessage(ctx, models.CreateMessageRequest{Uuid: "local:1", Channel: general, Text: "hi"})
	assert.True(t, services.IsTransportFault(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAttachmentResolver(t *testing.T) {
	resolve := NewAttachmentResolver("https://files.example/")

	assert.Equal(t, "https://files.example/attachments/abc.png", resolve.Resolve("abc.png"))
	assert.Equal(t, "https://files.example/media/abc.png", resolve.Resolve("/media/abc.png"))
	assert.Equal(t, "https://cdn.example/abc.png", resolve.Resolve("https://cdn.example/abc.png"))
	assert.Equal(t, "blob:1234", resolve.Resolve("blob:1234"))
	assert.Equal(t, "", resolve.Resolve(""))

	assert.Equal(t, "abc.png", NewAttachmentResolver("").Resolve("abc.png"))
	assert.Equal(t, "abc.png", services.URLResolver(nil).Resolve("abc.png"))
}
