// Package seed наполняет хранилище демонстрационным каталогом и адресами.
package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// DemoCustomerID — клиент, для которого создаются демо-адреса.
const DemoCustomerID int64 = 1

// Demo описывает созданные записи.
type Demo struct {
	Products  []domain.Product
	Addresses []domain.Address
}

var demoProducts = []domain.Product{
	{Name: "Arabica Beans", Description: "Medium roast whole beans, 250 g", Price: decimal.NewFromInt(150000), Stock: 50, Categories: []string{"beans"}},
	{Name: "Robusta Beans", Description: "Dark roast whole beans, 250 g", Price: decimal.NewFromInt(95000), Stock: 80, Categories: []string{"beans"}},
	{Name: "Gayo Single Origin", Description: "Light roast, washed process, 200 g", Price: decimal.NewFromInt(185000), Stock: 20, Categories: []string{"beans", "single-origin"}},
	{Name: "Cold Brew Concentrate", Description: "1 l bottle", Price: decimal.NewFromInt(120000), Stock: 30, Categories: []string{"ready-to-drink"}},
	{Name: "V60 Dripper", Description: "Ceramic pour-over dripper", Price: decimal.NewFromInt(275000), Stock: 10, Categories: []string{"equipment"}},
	{Name: "Paper Filters", Description: "100 pcs", Price: decimal.NewFromInt(45000), Stock: 200, Categories: []string{"equipment"}},
	{Name: "Hand Grinder", Description: "Burr grinder, stainless steel", Price: decimal.NewFromInt(650000), Stock: 0, Categories: []string{"equipment"}},
}

var demoAddresses = []domain.Address{
	{CustomerID: DemoCustomerID, Phone: "+62 812 0000 0001", Street: "Jl. Braga No. 10", City: "Bandung", PostalCode: "40111"},
	{CustomerID: DemoCustomerID + 1, Phone: "+62 812 0000 0002", Street: "Jl. Malioboro No. 5", City: "Yogyakarta", PostalCode: "55271"},
}

// Run создаёт демо-каталог и адреса в одной транзакции.
func Run(ctx context.Context, uow domain.UnitOfWork) (Demo, error) {
	var demo Demo
	err := uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		for _, p := range demoProducts {
			created, err := tx.Products().Create(ctx, p)
			if err != nil {
				return fmt.Errorf("seed product %q: %w", p.Name, err)
			}
			demo.Products = append(demo.Products, created)
		}
		for _, a := range demoAddresses {
			created, err := tx.Addresses().Create(ctx, a)
			if err != nil {
				return fmt.Errorf("seed address for customer %d: %w", a.CustomerID, err)
			}
			demo.Addresses = append(demo.Addresses, created)
		}
		return nil
	})
	if err != nil {
		return Demo{}, err
	}
	return demo, nil
}
