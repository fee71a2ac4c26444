package internal

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payone/config"
	"payone/entity"
	"payone/services"
)

const (
	collectionLog              = "payment_log"
	collectionOrders           = "orders"
	collectionPayments         = "payments"
	collectionPaymentMethods   = "payment_methods"
	collectionRemoteCustomers  = "remote_customers"
	collectionGatewayResponses = "gateway_responses"
)

type MongoDB struct {
	clientOptions    *options.ClientOptions
	database         string
	logRecordsNumber int64
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		clientOptions:    clientOptions,
		database:         conf.Mongo.Database,
		logRecordsNumber: conf.LogRecords,
	}
	return client, nil
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	err := connection.Disconnect(ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

func (m *MongoDB) GetOrder(ctx context.Context, orderId string) (*entity.Order, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "order_id", Value: orderId}}
	collection := connection.Database(m.database).Collection(collectionOrders)
	var order entity.Order
	if err = collection.FindOne(ctx, filter).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetWalletState reads the namespaced data blob from the order document.
// A missing blob is not an error; the caller decides.
func (m *MongoDB) GetWalletState(ctx context.Context, orderId, key string) (*entity.WalletState, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionOrders)
	filter := bson.D{{Key: "order_id", Value: orderId}}
	var doc struct {
		Data map[string]entity.WalletState `bson:"data"`
	}
	if err = collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, err
	}
	state, ok := doc.Data[key]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *MongoDB) SetWalletState(ctx context.Context, orderId, key string, state *entity.WalletState) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionOrders)
	filter := bson.D{{Key: "order_id", Value: orderId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "data." + key, Value: state},
		}},
	}
	if _, err = collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return err
	}
	return nil
}

// MarkCaptured is the compare-and-set guard against double capture: the
// update only matches while the blob still carries the expected txid with
// captured unset, so concurrent callbacks claim the capture at most once.
func (m *MongoDB) MarkCaptured(ctx context.Context, orderId, key, txid string) (bool, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionOrders)
	filter := bson.D{
		{Key: "order_id", Value: orderId},
		{Key: "data." + key + ".txid", Value: txid},
		{Key: "data." + key + ".captured", Value: false},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "data." + key + ".captured", Value: true},
			{Key: "data." + key + ".state", Value: entity.WalletCaptured},
		}},
	}
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

func (m *MongoDB) GetRemoteCustomerId(ctx context.Context, customerId, gatewayId string) (string, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return "", err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionRemoteCustomers)
	filter := bson.D{{Key: "customer_id", Value: customerId}, {Key: "gateway_id", Value: gatewayId}}
	var remote entity.RemoteCustomer
	err = collection.FindOne(ctx, filter).Decode(&remote)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return remote.RemoteId, nil
}

func (m *MongoDB) SetRemoteCustomerId(ctx context.Context, customerId, gatewayId, remoteId string) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionRemoteCustomers)
	filter := bson.D{{Key: "customer_id", Value: customerId}, {Key: "gateway_id", Value: gatewayId}}
	set := bson.M{"$set": entity.RemoteCustomer{
		CustomerId: customerId,
		GatewayId:  gatewayId,
		RemoteId:   remoteId,
	}}
	if _, err = collection.UpdateOne(ctx, filter, set, options.Update().SetUpsert(true)); err != nil {
		return err
	}
	return nil
}

func (m *MongoDB) SavePayment(ctx context.Context, payment *entity.Payment) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionPayments)
	_, err = collection.InsertOne(ctx, payment)
	return err
}

func (m *MongoDB) GetPaymentMethod(ctx context.Context, userId string) (*entity.PaymentMethod, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionPaymentMethods)
	filter := bson.D{{Key: "user_id", Value: userId}}
	var paymentMethod entity.PaymentMethod
	if err = collection.FindOne(ctx, filter).Decode(&paymentMethod); err != nil {
		return nil, err
	}
	return &paymentMethod, nil
}

func (m *MongoDB) SavePaymentMethod(ctx context.Context, paymentMethod *entity.PaymentMethod) error {
	if paymentMethod.UserId == "" {
		return fmt.Errorf("empty user id")
	}
	if paymentMethod.Identifier == "" {
		return fmt.Errorf("empty identifier")
	}

	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionPaymentMethods)
	filter := bson.D{{Key: "user_id", Value: paymentMethod.UserId}, {Key: "identifier", Value: paymentMethod.Identifier}}
	set := bson.M{"$set": paymentMethod}
	if _, err = collection.UpdateOne(ctx, filter, set, options.Update().SetUpsert(true)); err != nil {
		return err
	}
	return nil
}

func (m *MongoDB) SaveGatewayResponse(ctx context.Context, response *entity.Response) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionGatewayResponses)
	_, err = collection.InsertOne(ctx, response)
	return err
}

func (m *MongoDB) WriteLogMessage(data services.Data) error {
	ctx := context.Background()
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	if _, err = collection.InsertOne(ctx, data); err != nil {
		return err
	}
	m.trimLogRecords(ctx, collection)
	return nil
}

// trimLogRecords keeps the log collection at the configured size by dropping
// the oldest records. Zero means unlimited. Failures are ignored; trimming is
// housekeeping, not part of the write.
func (m *MongoDB) trimLogRecords(ctx context.Context, collection *mongo.Collection) {
	if m.logRecordsNumber <= 0 {
		return
	}
	count, err := collection.CountDocuments(ctx, bson.D{})
	if err != nil || count <= m.logRecordsNumber {
		return
	}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}}).SetLimit(count - m.logRecordsNumber)
	cursor, err := collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return
	}
	var docs []bson.M
	if err = cursor.All(ctx, &docs); err != nil {
		return
	}
	ids := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc["_id"])
	}
	_, _ = collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
}
