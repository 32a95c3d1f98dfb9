package mock

import (
	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stripe/speedtracer"
	"github.com/stripe/speedtracer/stores"
)

type MockStoreFactory struct {
	Controller *gomock.Controller
	Stores     map[string]*MockStore
}

func (factory *MockStoreFactory) CreateStore(
	name string, logger *logrus.Entry,
	config speedtracer.Config, storeConfig speedtracer.StoreConfig,
) (stores.Store, error) {
	store := NewMockStore(factory.Controller)
	// Have the mock Name method always return the passed in name, since each
	// store should have this behavior.
	store.EXPECT().Name().AnyTimes().Return(name)
	factory.Stores[name] = store
	return store, nil
}
