package app

import (
	"github.com/vk/componentry/internal/registry"
	"github.com/vk/componentry/modules/format"
	"github.com/vk/componentry/modules/location"
	"github.com/vk/componentry/modules/storage"
)

// coreModules returns every module compiled into the componentry binary.
// Which of them load is decided by the registry configuration.
func coreModules() []registry.Module {
	return []registry.Module{
		location.Module{},
		&storage.Module{},
		format.Module{},
	}
}
