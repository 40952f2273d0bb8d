package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	StateCreated  = "created"
	StateShipped  = "shipped"
	StateReceived = "received"
)

// ProductRecord is the on-ledger view of a product's custody milestones.
type ProductRecord struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Farmer   string `json:"farmer"`
	Quantity string `json:"quantity"`
	State    string `json:"state"`
}

// CustodyContract records products and their custody milestones in world state.
type CustodyContract struct {
	contractapi.Contract
}

func productKey(code string) string { return "PRODUCT_" + code }

func (c *CustodyContract) AddProduct(ctx contractapi.TransactionContextInterface, code, name, farmer, quantity string) error {
	if code == "" {
		return fmt.Errorf("product code is required")
	}
	existing, err := ctx.GetStub().GetState(productKey(code))
	if err != nil {
		return fmt.Errorf("failed to read product %s: %v", code, err)
	}
	if existing != nil {
		return fmt.Errorf("product %s already exists", code)
	}
	return c.put(ctx, &ProductRecord{Code: code, Name: name, Farmer: farmer, Quantity: quantity, State: StateCreated})
}

func (c *CustodyContract) ShipProduct(ctx contractapi.TransactionContextInterface, code string) error {
	return c.advance(ctx, code, StateCreated, StateShipped)
}

func (c *CustodyContract) ReceiveProduct(ctx contractapi.TransactionContextInterface, code string) error {
	return c.advance(ctx, code, StateShipped, StateReceived)
}

func (c *CustodyContract) GetProduct(ctx contractapi.TransactionContextInterface, code string) (*ProductRecord, error) {
	data, err := ctx.GetStub().GetState(productKey(code))
	if err != nil {
		return nil, fmt.Errorf("failed to read product %s: %v", code, err)
	}
	if data == nil {
		return nil, fmt.Errorf("product %s does not exist", code)
	}
	var rec ProductRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %v", err)
	}
	return &rec, nil
}

func (c *CustodyContract) advance(ctx contractapi.TransactionContextInterface, code, from, to string) error {
	rec, err := c.GetProduct(ctx, code)
	if err != nil {
		return err
	}
	if rec.State != from {
		return fmt.Errorf("product %s is %s, expected %s", code, rec.State, from)
	}
	rec.State = to
	return c.put(ctx, rec)
}

func (c *CustodyContract) put(ctx contractapi.TransactionContextInterface, rec *ProductRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %v", err)
	}
	return ctx.GetStub().PutState(productKey(rec.Code), data)
}
