package validators

import "go.mongodb.org/mongo-driver/bson"

var SlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"kind",
			"date",
			"start_time",
			"end_time",
			"price",
			"currency",
			"is_available",
			"current_bookings",
			"max_capacity",
			"ends_at",
			"version",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"kind": bson.M{
				"bsonType": "string",
				"enum":     []string{"appointment", "voucher", "call"},
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`,
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-2][0-9]:[0-5][0-9]$`,
			},

			"end_time": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-2][0-9]:[0-5][0-9]$`,
			},

			"location": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"authority": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"price": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-9]+(\.[0-9]+)?$`,
			},

			"currency": bson.M{
				"bsonType": "string",
				"enum":     []string{"PKR", "USD"},
			},

			"is_available": bson.M{
				"bsonType": "bool",
			},

			"current_bookings": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"max_capacity": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  500,
			},

			"booking_timer_minutes": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  120,
			},

			"ends_at": bson.M{
				"bsonType": "date",
			},

			"holds": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"id", "holder_id", "expires_at"},
					"properties": bson.M{
						"id":         bson.M{"bsonType": "string"},
						"holder_id":  bson.M{"bsonType": "string"},
						"expires_at": bson.M{"bsonType": "date"},
					},
				},
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}
