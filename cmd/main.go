package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"portfolio-chat/handler"
	"portfolio-chat/internal/enrich"
	"portfolio-chat/internal/gateway"
	"portfolio-chat/internal/integrations/gemini"
	"portfolio-chat/internal/integrations/github"
	"portfolio-chat/internal/integrations/paramstore"
	"portfolio-chat/internal/repository"
	"portfolio-chat/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	contactEmail := mustEnv("CONTACT_EMAIL")
	contactLinkedIn := os.Getenv("CONTACT_LINKEDIN")
	contactGitHub := os.Getenv("CONTACT_GITHUB")
	githubUser := os.Getenv("GITHUB_USER")
	maxRequests := envInt("MAX_REQUESTS_PER_DAY", 15)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 4000)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	dynamoClient := awsdynamodb.NewFromConfig(cfg)

	conversations, err := repository.NewConversationStore(dynamoClient, stateTable)
	if err != nil {
		slog.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}
	limiter, err := repository.NewRateLimiter(dynamoClient, stateTable, maxRequests)
	if err != nil {
		slog.Error("failed to create rate limiter", "err", err)
		os.Exit(1)
	}

	geminiClient, err := gemini.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}

	// Curated prompt content is fixed for the process lifetime; fetch it
	// once at cold start.
	persona := mustParam(ctx, ssmClient, paramPrefix+"/persona")
	contactFacts := mustParam(ctx, ssmClient, paramPrefix+"/contact")
	model := mustParam(ctx, ssmClient, paramPrefix+"/config/model")

	gw, err := gateway.New(geminiClient, gateway.Config{
		Model:           model,
		Persona:         persona,
		ContactFacts:    contactFacts,
		ContactEmail:    contactEmail,
		ContactLinkedIn: contactLinkedIn,
		ContactGitHub:   contactGitHub,
	})
	if err != nil {
		slog.Error("failed to create model gateway", "err", err)
		os.Exit(1)
	}

	var projects enrich.ProjectSource
	if githubUser != "" {
		ghClient, err := github.NewClient(githubUser)
		if err != nil {
			slog.Error("failed to create GitHub client", "err", err)
			os.Exit(1)
		}
		projects = ghClient
	}
	enricher, err := enrich.New(ssmClient, paramPrefix, projects)
	if err != nil {
		slog.Error("failed to create enricher", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(gw, conversations, limiter, enricher, maxMessageLen)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(chatService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustParam(ctx context.Context, ps *paramstore.Client, name string) string {
	v, err := ps.GetParameter(ctx, name)
	if err != nil {
		slog.Error("required parameter could not be loaded", "name", name, "err", err)
		os.Exit(1)
	}
	return v
}
