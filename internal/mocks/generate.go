// Package mocks provides mock implementations for testing the conveyor job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the repository interfaces in internal/core. The mocks are generated with
// go:generate directives and provide a fluent API for setting up expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockWebhookRepository(ctrl)
//	mockRepo.EXPECT().ListByUser(gomock.Any(), gomock.Any()).Return(hooks, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=webhook_repository_mock.go github.com/conveyorhq/conveyor/internal/core WebhookRepository
