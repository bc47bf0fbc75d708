package gap

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

// IdempotencyHeader carries the provisional id of a send so the server can
// drop a second copy of the same intent.
const IdempotencyHeader = "X-Idempotency-Key"

// RestClient talks to the request/response API of the messaging service.
type RestClient struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

func (v *RestClient) url(path string, query url.Values) string {
	out := strings.TrimSuffix(v.Endpoint, "/") + path
	if len(query) > 0 {
		out += "?" + query.Encode()
	}
	return out
}

// agent creates a request carrying the credentials and the JSON codec of
// the client. The body must be set after this.
func (v *RestClient) agent(method, path string, query url.Values) *fiber.Agent {
	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(v.url(path, query))
	agent.JSONEncoder(jsoniter.ConfigCompatibleWithStandardLibrary.Marshal).
		JSONDecoder(jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal)
	if len(v.AccessToken) > 0 {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+v.AccessToken)
	}
	return agent
}

// do sends the request and decodes a successful JSON answer into out.
func (v *RestClient) do(ctx context.Context, op string, agent *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(agent)
		return &services.TransportError{Op: op, Err: err}
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("unable prepare %s: %v", op, err)
	}

	timeout := lo.Ternary(v.Timeout > 0, v.Timeout, 10*time.Second)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return &services.TransportError{Op: op, Err: errs[0]}
	}

	switch {
	case code == fiber.StatusUnavailableForLegalReasons:
		return &services.ContentRejectedError{Reason: strings.TrimSpace(string(body))}
	case code == fiber.StatusBadGateway || code == fiber.StatusServiceUnavailable || code == fiber.StatusGatewayTimeout:
		return &services.TransportError{Op: op, Err: fmt.Errorf("gateway answered %d", code)}
	case code < 200 || code >= 300:
		return &services.APIError{Status: code, Message: strings.TrimSpace(string(body))}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := jsoniter.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unable parse response of %s: %v", op, err)
	}
	return nil
}

func scopeQuery(scope models.Scope) url.Values {
	return url.Values{"channel": []string{scope.String()}}
}

func (v *RestClient) ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	var resp listResponse[models.Message]
	err := v.do(ctx, "list messages", v.agent(fiber.MethodGet, "/channels/messages", scopeQuery(scope)), &resp)
	return resp.Data, err
}

func (v *RestClient) ListMembers(ctx context.Context, scope models.Scope) ([]models.ChannelMember, error) {
	var resp listResponse[models.ChannelMember]
	err := v.do(ctx, "list members", v.agent(fiber.MethodGet, "/channels/members", scopeQuery(scope)), &resp)
	return resp.Data, err
}

// CreateMessage persists a message. Attachments are uploaded as a multipart
// form, everything else as JSON.
func (v *RestClient) CreateMessage(ctx context.Context, req models.CreateMessageRequest) (models.Message, error) {
	var out models.Message

	var agent *fiber.Agent
	if req.Attachment != nil {
		agent = v.agent(fiber.MethodPost, "/channels/messages/attachments", nil)
		args := fiber.AcquireArgs()
		defer fiber.ReleaseArgs(args)
		args.Set("uuid", req.Uuid)
		args.Set("channel", req.Channel.String())
		args.Set("kind", string(req.Kind))
		args.Set("text", req.Text)
		if len(req.ReplyTo) > 0 {
			args.Set("reply_to", req.ReplyTo)
		}
		agent.FileData(&fiber.FormFile{
			Fieldname: "file",
			Name:      lo.Ternary(len(req.Attachment.Name) > 0, req.Attachment.Name, "attachment"),
			Content:   req.Attachment.Data,
		}).MultipartForm(args)
	} else {
		agent = v.agent(fiber.MethodPost, "/channels/messages", nil).JSON(req)
	}
	agent.Set(IdempotencyHeader, req.Uuid)

	err := v.do(ctx, "create message", agent, &out)
	return out, err
}

func (v *RestClient) MarkRead(ctx context.Context, req models.ReadAnchorRequest) error {
	return v.do(ctx, "mark read", v.agent(fiber.MethodPut, "/channels/read", nil).JSON(req), nil)
}

func (v *RestClient) DeleteMessages(ctx context.Context, req models.DeleteMessagesRequest) error {
	return v.do(ctx, "delete messages", v.agent(fiber.MethodDelete, "/channels/messages", nil).JSON(req), nil)
}
