// Package mocks provides gomock implementations of the session ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	provider := mocks.NewMockAuthProvider(ctrl)
//	provider.EXPECT().Login(gomock.Any(), gomock.Any()).Return(grant, nil)
package mocks

// Generate mock for AuthProvider interface from internal/ports package.
// This creates MockAuthProvider with methods: Name, Login, Refresh, Logout
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_provider_mock.go github.com/eduadmin/portal/internal/ports AuthProvider

// Generate mock for StorageBackend interface from internal/ports package.
// This creates MockStorageBackend with methods: Get, Set, Remove, Clear
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=storage_backend_mock.go github.com/eduadmin/portal/internal/ports StorageBackend
