package drivers

import (
	"fmt"

	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/meteocima/coupled-drivers/namelist"
	"go.uber.org/zap"
)

func (ctx *Context) abs(file fsutil.Path) string {
	return ctx.Tr.Root.JoinP(file).String()
}

// readNamelist reads a namelist of the work directory. A missing or
// malformed file is an error: drivers only edit namelists the model
// reads, and cannot fall back to defaults.
func (ctx *Context) readNamelist(file fsutil.Path) (*namelist.File, error) {
	if ctx.Tr.Err != nil {
		return nil, ctx.Tr.Err
	}
	nl, err := namelist.ReadFile(ctx.abs(file))
	if err != nil {
		return nil, fmt.Errorf("namelist `%s`: %w", file, err)
	}
	return nl, nil
}

func (ctx *Context) writeNamelist(file fsutil.Path, nl *namelist.File) error {
	if ctx.Tr.Err != nil {
		return ctx.Tr.Err
	}
	if err := namelist.WriteFile(ctx.abs(file), nl); err != nil {
		return fmt.Errorf("namelist `%s`: %w", file, err)
	}
	ctx.logger().Debug("namelist updated", zap.Stringer("file", file))
	return nil
}
