package graphql

import (
	"github.com/graphql-go/graphql"
)

var (
	// Scalar types. Amounts are decimal strings so uint256 values
	// survive the trip through JSON.
	bigIntType  = graphql.String
	addressType = graphql.String
	hashType    = graphql.String

	// Enum types
	transactionTypeEnum *graphql.Enum
	proposalStatusEnum  *graphql.Enum

	// Object types
	transactionType   *graphql.Object
	userAnalyticsType *graphql.Object
	proposalType      *graphql.Object
	voteType          *graphql.Object
	snapshotType      *graphql.Object
	holderType        *graphql.Object
	statusType        *graphql.Object
)

func init() {
	initTypes()
}

func initTypes() {
	transactionTypeEnum = graphql.NewEnum(graphql.EnumConfig{
		Name: "TransactionType",
		Values: graphql.EnumValueConfigMap{
			"TRANSFER": &graphql.EnumValueConfig{Value: "TRANSFER"},
			"MINT":     &graphql.EnumValueConfig{Value: "MINT"},
			"BURN":     &graphql.EnumValueConfig{Value: "BURN"},
		},
	})

	proposalStatusEnum = graphql.NewEnum(graphql.EnumConfig{
		Name: "ProposalStatus",
		Values: graphql.EnumValueConfigMap{
			"ACTIVE":   &graphql.EnumValueConfig{Value: "ACTIVE"},
			"PASSED":   &graphql.EnumValueConfig{Value: "PASSED"},
			"FAILED":   &graphql.EnumValueConfig{Value: "FAILED"},
			"EXECUTED": &graphql.EnumValueConfig{Value: "EXECUTED"},
		},
	})

	transactionType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Transaction",
		Fields: graphql.Fields{
			"hash": &graphql.Field{
				Type: graphql.NewNonNull(hashType),
			},
			"logIndex": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"from": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"to": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"amount": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"fee": &graphql.Field{
				Type: bigIntType,
			},
			"type": &graphql.Field{
				Type: graphql.NewNonNull(transactionTypeEnum),
			},
			"status": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"blockNumber": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"timestamp": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	})

	userAnalyticsType = graphql.NewObject(graphql.ObjectConfig{
		Name: "UserAnalytics",
		Fields: graphql.Fields{
			"address": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"totalTransactions": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"totalVolume": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"firstTransaction": &graphql.Field{
				Type: graphql.String,
			},
			"lastTransaction": &graphql.Field{
				Type: graphql.String,
			},
		},
	})

	voteType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Vote",
		Fields: graphql.Fields{
			"proposalId": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"voter": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"support": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
			},
			"weight": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"blockNumber": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"timestamp": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	})

	proposalType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Proposal",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"title": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"description": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"proposer": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"status": &graphql.Field{
				Type: graphql.NewNonNull(proposalStatusEnum),
			},
			"startTime": &graphql.Field{
				Type: graphql.String,
			},
			"endTime": &graphql.Field{
				Type: graphql.String,
			},
			"votesFor": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"votesAgainst": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"totalVotes": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"blockNumber": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
		},
	})

	snapshotType = graphql.NewObject(graphql.ObjectConfig{
		Name: "TokenMetricsSnapshot",
		Fields: graphql.Fields{
			"totalSupply": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"circulatingSupply": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"burnedTokens": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"holders": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"transfers24h": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
			},
			"volume24h": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"timestamp": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	})

	holderType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Holder",
		Fields: graphql.Fields{
			"address": &graphql.Field{
				Type: graphql.NewNonNull(addressType),
			},
			"balance": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
		},
	})

	statusType = graphql.NewObject(graphql.ObjectConfig{
		Name: "IndexerStatus",
		Fields: graphql.Fields{
			"state": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
			"cursorHeight": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"feedHeight": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
			},
			"startedAt": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
			},
		},
	})
}
