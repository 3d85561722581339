package http

import (
	"github.com/gin-gonic/gin"

	cacheport "studychat/internal/infrastructure/cache/port"
	queueport "studychat/internal/infrastructure/queue/port"
	"studychat/internal/infrastructure/realtime"
	"studychat/internal/pkg/chat/application/dispatch"
	"studychat/internal/pkg/chat/application/usecase"
	repository "studychat/internal/pkg/chat/persistence/repository/port"
	"studychat/internal/pkg/chat/presentation/controller"
	"studychat/internal/pkg/identity/middleware"
	identity "studychat/internal/pkg/identity/port"
)

// Deps carries everything the chat surface needs. Cache and Queue are
// optional; routes degrade to direct store reads and no offline
// notifications when they are nil.
type Deps struct {
	Repo      repository.ChatRepository
	Directory identity.Directory
	Verifier  identity.Verifier
	Registry  *realtime.Registry
	Cache     cacheport.Cache
	Queue     queueport.Client
}

// RegisterRoutes registers chat HTTP endpoints under the given router
// group. It constructs per-endpoint controllers and binds them directly to
// routes; every route except the websocket upgrade goes through the auth
// middleware, the upgrade authenticates itself so the token can ride a
// query parameter.
func RegisterRoutes(g *gin.RouterGroup, deps Deps) *dispatch.Dispatcher {
	unreadUC := usecase.NewUnreadCountUseCase(deps.Repo, deps.Cache)
	d := dispatch.NewDispatcher(
		usecase.NewSendMessageUseCase(deps.Repo),
		usecase.NewMarkReadUseCase(deps.Repo),
		unreadUC,
		deps.Registry,
		deps.Queue,
	)

	sendCtl := controller.NewSendMessageController(d)
	historyCtl := controller.NewGetMessageController(usecase.NewGetMessagesUseCase(deps.Repo))
	listCtl := controller.NewListConversationsController(usecase.NewListConversationsUseCase(deps.Repo, deps.Directory))
	markCtl := controller.NewMarkReadController(d)
	unreadCtl := controller.NewUnreadCountController(unreadUC)
	deleteCtl := controller.NewDeleteMessageController(usecase.NewDeleteMessageUseCase(deps.Repo))
	socketCtl := controller.NewChatSocketController(deps.Verifier, deps.Registry, d)

	auth := middleware.RequireAuth(deps.Verifier)

	g.POST("/chat/messages", auth, sendCtl.Handle())
	g.GET("/chat/conversations", auth, listCtl.Handle())
	g.GET("/chat/conversations/search", auth, listCtl.HandleSearch())
	g.GET("/chat/conversations/:conversationId/messages", auth, historyCtl.Handle())
	g.PUT("/chat/conversations/:conversationId/read", auth, markCtl.Handle())
	g.GET("/chat/unread", auth, unreadCtl.Handle())
	g.DELETE("/chat/messages/:messageId", auth, deleteCtl.Handle())

	// GET /chat/ws -> websocket endpoint for realtime chat
	g.GET("/chat/ws", socketCtl.Handle())

	return d
}
