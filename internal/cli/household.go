package cli

import "fmt"

type ProductAddCmd struct {
	Name   string  `arg:"" help:"Product name."`
	Amount float64 `arg:"" help:"Initial stock amount."`
}

func (c *ProductAddCmd) Run(ctx *Context) error {
	p, err := ctx.Products.Create(ctx.Ctx, c.Name, c.Amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Added product #%d %q (stock %g)\n", p.ID, p.Name, p.StockAmount)
	return nil
}

type ProductListCmd struct{}

func (c *ProductListCmd) Run(ctx *Context) error {
	products, err := ctx.Products.List(ctx.Ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		fmt.Fprintf(ctx.Out, "  #%-4d %-24s %g\n", p.ID, p.Name, p.StockAmount)
	}
	return nil
}

type MemberAddCmd struct {
	Name string `arg:"" help:"Member name."`
}

func (c *MemberAddCmd) Run(ctx *Context) error {
	m, err := ctx.Members.Create(ctx.Ctx, c.Name)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Added member #%d %q\n", m.ID, m.Name)
	return nil
}

type MemberListCmd struct{}

func (c *MemberListCmd) Run(ctx *Context) error {
	members, err := ctx.Members.List(ctx.Ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		fmt.Fprintf(ctx.Out, "  #%-4d %s\n", m.ID, m.Name)
	}
	return nil
}
