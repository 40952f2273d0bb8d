package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/flicky/agrichain-api/internal/chaincode"
)

func main() {
	cc, err := contractapi.NewChaincode(&chaincode.CustodyContract{})
	if err != nil {
		log.Panicf("create custody chaincode: %v", err)
	}
	if err := cc.Start(); err != nil {
		log.Panicf("start custody chaincode: %v", err)
	}
}
