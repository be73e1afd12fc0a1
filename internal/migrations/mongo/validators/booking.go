package validators

import "go.mongodb.org/mongo-driver/bson"

// BookingValidator is shared by appointment_bookings, call_bookings and
// voucher_purchases.
var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"kind",
			"slot_id",
			"status",
			"price",
			"currency",
			"slot_date",
			"created_at",
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

			"slot_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"guest": bson.M{
				"bsonType": "object",
				"required": []string{"name"},
				"properties": bson.M{
					"name":  bson.M{"bsonType": "string", "minLength": 2, "maxLength": 100},
					"email": bson.M{"bsonType": "string"},
					"phone": bson.M{"bsonType": "string", "pattern": `^\+[1-9][0-9]{6,14}$`},
				},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"rejected",
					"reschedule_requested",
				},
			},

			"admin_message": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"price": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-9]+(\.[0-9]+)?$`,
			},

			"currency": bson.M{
				"bsonType": "string",
				"enum":     []string{"PKR", "USD"},
			},

			"slot_date": bson.M{
				"bsonType": "string",
				"pattern":  `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
