package app

import (
	"github.com/specialistvlad/burstbeam/internal/inmemorystore"
	"github.com/specialistvlad/burstbeam/internal/registry"
	"github.com/specialistvlad/burstbeam/modules/local"
	"github.com/specialistvlad/burstbeam/modules/s3"
	"github.com/specialistvlad/burstbeam/modules/socketio"
)

// coreModules is the definitive list of all backends and stores compiled
// into the burstbeam binary.
var coreModules = []registry.Module{
	&local.Module{},
	&socketio.Module{},
	&inmemorystore.Module{},
	&s3.Module{},
}
