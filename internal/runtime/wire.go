// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

//go:build wireinject

package runtime

import (
	"context"

	"github.com/google/wire"
	"github.com/vectorframe/tablesync/internal/config"
)

// New assembles a Runtime from a bootstrap Config. This file is never
// compiled; `go generate` runs wire against it to produce wire_gen.go.
func New(ctx context.Context, cfg *config.Config) (*Runtime, func(), error) {
	panic(wire.Build(
		Set,
		wire.Struct(new(Runtime), "*"),
	))
}
